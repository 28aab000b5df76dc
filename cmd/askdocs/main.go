package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/askdocs/askdocs-go/internal/chat"
	"github.com/askdocs/askdocs-go/internal/config"
	"github.com/askdocs/askdocs-go/internal/devserver"
	"github.com/askdocs/askdocs-go/internal/state"
	"github.com/askdocs/askdocs-go/internal/token"
	"github.com/askdocs/askdocs-go/internal/transport"

	docapi "github.com/askdocs/askdocs-go/internal/api"
)

// app holds the wired client engine shared by all commands.
type app struct {
	cfg    *config.Config
	st     state.Store
	tokens *token.Store
	client *transport.Client
	api    *docapi.Client
	chats  *chat.Store
}

func newApp(baseURL string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setLogLevel(cfg.LogLevel)

	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	tokens := token.NewStore(st)
	client := transport.New(cfg, tokens)

	return &app{
		cfg:    cfg,
		st:     st,
		tokens: tokens,
		client: client,
		api:    docapi.New(cfg, client),
		chats:  chat.NewStore(st),
	}, nil
}

func (a *app) Close() {
	if err := a.st.Close(); err != nil {
		log.Warn().Err(err).Msg("closing state store")
	}
}

// currentUser resolves the logged-in user from the stored session.
func (a *app) currentUser(ctx context.Context) (string, error) {
	sess, err := a.tokens.Get(ctx)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", fmt.Errorf("not logged in (run: askdocs login)")
	}
	return sess.User.ID, nil
}

func openStore(cfg *config.Config) (state.Store, error) {
	switch cfg.StateBackend {
	case config.BackendMemory:
		return state.NewMemoryStore(), nil
	case config.BackendFile:
		dir := cfg.StateDir
		if dir == "" {
			base, err := os.UserConfigDir()
			if err != nil {
				return nil, fmt.Errorf("resolve state dir: %w", err)
			}
			dir = filepath.Join(base, "askdocs")
		}
		return state.NewFileStore(dir)
	case config.BackendRedis:
		return state.NewRedisStore(cfg.RedisURL)
	case config.BackendPostgres:
		return state.NewPostgresStore(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}

func setLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var baseURL string

	root := &cobra.Command{
		Use:           "askdocs",
		Short:         "Chat with your documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&baseURL, "base-url", "", "API base URL (overrides ASKDOCS_BASE_URL)")

	root.AddCommand(
		newServeCmd(),
		newLoginCmd(&baseURL),
		newSignupCmd(&baseURL),
		newLogoutCmd(&baseURL),
		newWhoamiCmd(&baseURL),
		newAskCmd(&baseURL),
		newSessionsCmd(&baseURL),
		newUploadCmd(&baseURL),
	)

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local development backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			setLogLevel(cfg.LogLevel)

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			srv := &http.Server{
				Addr:        cfg.Addr(),
				Handler:     devserver.New(st).Handler(),
				ReadTimeout: config.ServerReadTimeout,
				IdleTimeout: config.ServerIdleTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Addr()).Msg("dev server listening")
				errCh <- srv.ListenAndServe()
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-stop:
				log.Info().Str("signal", sig.String()).Msg("shutting down")
				ctx, cancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}
}

func newLoginCmd(baseURL *string) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and persist the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*baseURL)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.client.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Printf("Logged in as %s <%s>\n", sess.User.Name, sess.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func newSignupCmd(baseURL *string) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and persist the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*baseURL)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.client.Signup(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			fmt.Printf("Welcome, %s! You are logged in as %s\n", sess.User.Name, sess.User.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCmd(baseURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*baseURL)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.client.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(baseURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*baseURL)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.tokens.Get(cmd.Context())
			if err != nil {
				return err
			}
			if sess == nil {
				fmt.Println("Not logged in.")
				return nil
			}
			valid := "expired"
			if a.tokens.IsValid(cmd.Context()) {
				valid = "valid"
			}
			fmt.Printf("%s <%s> (access token %s)\n", sess.User.Name, sess.User.Email, valid)
			return nil
		},
	}
}
