package directory

import "context"

type Repository interface {
	Get(ctx context.Context, id string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Create(ctx context.Context, u *User) error
	FindByAPIKey(ctx context.Context, apiKey string) (*User, error)
}
