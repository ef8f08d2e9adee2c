package storage

import "context"

// FieldMap maps semantic field names to the remote schema's field identifiers.
// Unmapped fields pass through unchanged and the id field is never mapped.
type FieldMap map[string]string

func (m FieldMap) outbound(row Row) Row {
	if len(m) == 0 || row == nil {
		return row
	}
	out := make(Row, len(row))
	for k, v := range row {
		if remote, ok := m[k]; ok && k != FieldID {
			out[remote] = v
			continue
		}
		out[k] = v
	}
	return out
}

func (m FieldMap) inbound(row Row) Row {
	if len(m) == 0 || row == nil {
		return row
	}
	reverse := make(map[string]string, len(m))
	for semantic, remote := range m {
		reverse[remote] = semantic
	}
	out := make(Row, len(row))
	for k, v := range row {
		if semantic, ok := reverse[k]; ok && k != FieldID {
			out[semantic] = v
			continue
		}
		out[k] = v
	}
	return out
}

type mappedRemote struct {
	Remote
	maps map[Table]FieldMap
}

// WithFieldMap translates rows between semantic names and the remote's field
// identifiers, per table.
func WithFieldMap(remote Remote, maps map[Table]FieldMap) Remote {
	if remote == nil || len(maps) == 0 {
		return remote
	}
	return &mappedRemote{Remote: remote, maps: maps}
}

func (m *mappedRemote) Create(ctx context.Context, table Table, row Row) (string, error) {
	return m.Remote.Create(ctx, table, m.maps[table].outbound(row))
}

func (m *mappedRemote) List(ctx context.Context, table Table) ([]Row, error) {
	rows, err := m.Remote.List(ctx, table)
	if err != nil {
		return nil, err
	}
	fm := m.maps[table]
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, fm.inbound(r))
	}
	return out, nil
}

func (m *mappedRemote) Get(ctx context.Context, table Table, id string) (Row, error) {
	row, err := m.Remote.Get(ctx, table, id)
	if err != nil {
		return nil, err
	}
	return m.maps[table].inbound(row), nil
}

func (m *mappedRemote) Update(ctx context.Context, table Table, id string, partial Row) error {
	return m.Remote.Update(ctx, table, id, m.maps[table].outbound(partial))
}

func (m *mappedRemote) Ping(ctx context.Context) error {
	if p, ok := m.Remote.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
