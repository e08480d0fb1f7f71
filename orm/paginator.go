package orm

import "github.com/kubit-go/kubit/database"

// ModelPaginator is a page of models which serializes them along with the meta
type ModelPaginator[T any] struct {
	*database.SimplePaginator[T]

	naming SnakeCaseNamingStrategy
}

// Serialize returns {"meta": ..., "data": [...]}
func (p *ModelPaginator[T]) Serialize() (map[string]any, error) {
	data, err := SerializeMany(p.Rows(), p.naming)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"meta": p.Meta(),
		"data": data,
	}, nil
}
