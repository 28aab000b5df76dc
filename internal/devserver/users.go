package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/askdocs/askdocs-go/internal/model"
	"github.com/askdocs/askdocs-go/internal/state"
)

// storedUser is one entry of the development users index. Passwords are
// kept as bcrypt hashes even in dev mode.
type storedUser struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
	CreatedAt    int64  `json:"createdAt"`
}

func (u *storedUser) public() model.User {
	return model.User{ID: u.ID, Name: u.Name, Email: u.Email}
}

type userIndex struct {
	st state.Store
}

func (ix *userIndex) load(ctx context.Context) ([]storedUser, error) {
	data, ok, err := ix.st.Load(ctx, state.UsersKey)
	if err != nil {
		return nil, fmt.Errorf("load users index: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var users []storedUser
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("users index is corrupt: %w", err)
	}
	return users, nil
}

func (ix *userIndex) save(ctx context.Context, users []storedUser) error {
	data, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("marshal users index: %w", err)
	}
	if err := ix.st.Save(ctx, state.UsersKey, data); err != nil {
		return fmt.Errorf("save users index: %w", err)
	}
	return nil
}

func (ix *userIndex) findByEmail(ctx context.Context, email string) (*storedUser, error) {
	users, err := ix.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if strings.EqualFold(users[i].Email, email) {
			return &users[i], nil
		}
	}
	return nil, nil
}

func (ix *userIndex) findByID(ctx context.Context, id string) (*storedUser, error) {
	users, err := ix.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, nil
}

// create registers a new user; duplicate emails are rejected.
func (ix *userIndex) create(ctx context.Context, name, email, password string) (*storedUser, error) {
	existing, err := ix.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := storedUser{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(name),
		Email:        strings.TrimSpace(email),
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UnixMilli(),
	}

	users, err := ix.load(ctx)
	if err != nil {
		return nil, err
	}
	users = append(users, user)
	if err := ix.save(ctx, users); err != nil {
		return nil, err
	}
	return &user, nil
}

func (ix *userIndex) authenticate(ctx context.Context, email, password string) (*storedUser, error) {
	user, err := ix.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, nil
	}
	return user, nil
}
