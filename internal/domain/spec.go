package domain

// IndexSpec declares a secondary index and the version range it exists in.
type IndexSpec struct {
	Name       string
	KeyPath    KeyPath
	Unique     bool
	MultiEntry bool
	CreatedAt  Version
	DroppedAt  Version
}

func (i IndexSpec) ActiveAt(v Version) bool {
	return ActiveAt(i.CreatedAt, i.DroppedAt, v)
}

func (i IndexSpec) Clone() IndexSpec {
	i.KeyPath = i.KeyPath.Clone()
	return i
}

// StoreSpec declares a named record store. An unset KeyPath means keys are
// supplied out of line.
type StoreSpec struct {
	Name          string
	KeyPath       KeyPath
	AutoIncrement bool
	Indexes       []IndexSpec
	CreatedAt     Version
	DroppedAt     Version
}

func (s StoreSpec) ActiveAt(v Version) bool {
	return ActiveAt(s.CreatedAt, s.DroppedAt, v)
}

// IndexesAt returns the indexes of s that exist at v, in declaration order.
func (s StoreSpec) IndexesAt(v Version) []IndexSpec {
	var active []IndexSpec
	for _, index := range s.Indexes {
		if index.ActiveAt(v) {
			active = append(active, index)
		}
	}
	return active
}

// AtVersion returns the shape of s at v: the same store with only the
// indexes that exist at v.
func (s StoreSpec) AtVersion(v Version) StoreSpec {
	out := s.Clone()
	out.Indexes = s.IndexesAt(v)
	if out.Indexes == nil {
		out.Indexes = []IndexSpec{}
	}
	return out
}

func (s StoreSpec) Index(name string) (IndexSpec, bool) {
	for _, index := range s.Indexes {
		if index.Name == name {
			return index, true
		}
	}
	return IndexSpec{}, false
}

func (s StoreSpec) Clone() StoreSpec {
	s.KeyPath = s.KeyPath.Clone()
	if s.Indexes != nil {
		indexes := make([]IndexSpec, len(s.Indexes))
		for i, index := range s.Indexes {
			indexes[i] = index.Clone()
		}
		s.Indexes = indexes
	}
	return s
}

// StoresAt returns the stores that exist at v, each reduced to the indexes
// that exist at v.
func StoresAt(stores []StoreSpec, v Version) []StoreSpec {
	var out []StoreSpec
	for _, store := range stores {
		if store.ActiveAt(v) {
			out = append(out, store.AtVersion(v))
		}
	}
	return out
}
