package records

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"widget-preview/internal/domain"
	"widget-preview/internal/storage"
)

// ClientService is the typed facade over the clients table.
type ClientService struct {
	store storage.Store
	opts  options
}

func NewClientService(store storage.Store, opts ...Option) (*ClientService, error) {
	if store == nil {
		return nil, errors.New("records: store must not be nil")
	}
	return &ClientService{store: store, opts: buildOptions(opts)}, nil
}

// Create stores c and returns the id assigned by the store. ID and timestamps
// on c are ignored.
func (s *ClientService) Create(ctx context.Context, c domain.Client) (string, error) {
	now := formatTime(s.opts.now())
	row := storage.Row{
		"name":      strings.TrimSpace(c.Name),
		"slug":      c.Slug,
		"createdAt": now,
		"updatedAt": now,
	}
	putOptional(row, "email", c.Email)
	putOptional(row, "phone", c.Phone)
	putOptional(row, "company", c.Company)

	id, err := s.store.Create(ctx, storage.TableClients, row)
	if err != nil {
		return "", fmt.Errorf("records: create client: %w", err)
	}
	return id, nil
}

// List returns every client, newest first.
func (s *ClientService) List(ctx context.Context) ([]domain.Client, error) {
	rows, err := s.store.List(ctx, storage.TableClients)
	if err != nil {
		return nil, fmt.Errorf("records: list clients: %w", err)
	}
	out := make([]domain.Client, 0, len(rows))
	for _, r := range rows {
		out = append(out, clientFromRow(r))
	}
	slices.SortStableFunc(out, func(a, b domain.Client) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *ClientService) Get(ctx context.Context, id string) (domain.Client, error) {
	row, err := s.store.Get(ctx, storage.TableClients, id)
	if err != nil {
		return domain.Client{}, fmt.Errorf("records: get client %q: %w", id, err)
	}
	return clientFromRow(row), nil
}

// GetBySlug returns the client owning slug, or ErrNotFound.
func (s *ClientService) GetBySlug(ctx context.Context, slug string) (domain.Client, error) {
	clients, err := s.List(ctx)
	if err != nil {
		return domain.Client{}, err
	}
	for _, c := range clients {
		if c.Slug == slug {
			return c, nil
		}
	}
	return domain.Client{}, fmt.Errorf("records: client slug %q: %w", slug, ErrNotFound)
}

// Update applies the non-nil fields of patch and bumps updatedAt.
func (s *ClientService) Update(ctx context.Context, id string, patch domain.ClientPatch) error {
	row := storage.Row{"updatedAt": formatTime(s.opts.now())}
	if patch.Name != nil {
		row["name"] = strings.TrimSpace(*patch.Name)
	}
	if patch.Email != nil {
		row["email"] = strings.TrimSpace(*patch.Email)
	}
	if patch.Phone != nil {
		row["phone"] = strings.TrimSpace(*patch.Phone)
	}
	if patch.Company != nil {
		row["company"] = strings.TrimSpace(*patch.Company)
	}
	if err := s.store.Update(ctx, storage.TableClients, id, row); err != nil {
		return fmt.Errorf("records: update client %q: %w", id, err)
	}
	return nil
}

func (s *ClientService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, storage.TableClients, id); err != nil {
		return fmt.Errorf("records: delete client %q: %w", id, err)
	}
	return nil
}

func clientFromRow(r storage.Row) domain.Client {
	return domain.Client{
		ID:        stringValue(r[storage.FieldID]),
		Name:      r.String("name"),
		Slug:      r.String("slug"),
		Email:     r.String("email"),
		Phone:     r.String("phone"),
		Company:   r.String("company"),
		CreatedAt: parseTime(r["createdAt"]),
		UpdatedAt: parseTime(r["updatedAt"]),
	}
}

func putOptional(row storage.Row, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		row[key] = v
	}
}
