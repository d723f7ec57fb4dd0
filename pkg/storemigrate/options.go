package storemigrate

type StoreOption func(*Store)

type IndexOption func(*Index)

// NewStore declares a store. Without options it exists from version 1 on,
// has out-of-line keys and no indexes.
func NewStore(name string, opts ...StoreOption) Store {
	store := Store{Name: name, Indexes: []Index{}}
	for _, opt := range opts {
		opt(&store)
	}
	return store
}

func WithKeyPath(kp KeyPath) StoreOption {
	return func(s *Store) { s.KeyPath = kp }
}

func WithAutoIncrement() StoreOption {
	return func(s *Store) { s.AutoIncrement = true }
}

func WithIndexes(indexes ...Index) StoreOption {
	return func(s *Store) { s.Indexes = append(s.Indexes, indexes...) }
}

func StoreCreatedAt(v Version) StoreOption {
	return func(s *Store) { s.CreatedAt = v }
}

func StoreDroppedAt(v Version) StoreOption {
	return func(s *Store) { s.DroppedAt = v }
}

// NewIndex declares an index over kp. It is named after kp unless WithName
// is given.
func NewIndex(kp KeyPath, opts ...IndexOption) Index {
	index := Index{KeyPath: kp, Name: kp.Name()}
	for _, opt := range opts {
		opt(&index)
	}
	return index
}

func WithName(name string) IndexOption {
	return func(i *Index) { i.Name = name }
}

func WithUnique() IndexOption {
	return func(i *Index) { i.Unique = true }
}

func WithMultiEntry() IndexOption {
	return func(i *Index) { i.MultiEntry = true }
}

func IndexCreatedAt(v Version) IndexOption {
	return func(i *Index) { i.CreatedAt = v }
}

func IndexDroppedAt(v Version) IndexOption {
	return func(i *Index) { i.DroppedAt = v }
}
