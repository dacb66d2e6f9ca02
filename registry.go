package woodchuck

// Registry guarantees at most one live local proxy per remote UUID,
// per entity kind. Lookups by UUID and by cookie that resolve to the
// same remote entity therefore share one proxy and one property cache.
// Entries are held strongly and removed on every successful
// unregistration path; the registry is instantiable so tests can
// isolate state.
type Registry struct {
	managers map[string]*Manager
	streams  map[string]*Stream
	objects  map[string]*Object
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		managers: make(map[string]*Manager),
		streams:  make(map[string]*Stream),
		objects:  make(map[string]*Object),
	}
}

func (r *Registry) manager(uuid string, construct func() (*Manager, error)) (*Manager, error) {
	if m, ok := r.managers[uuid]; ok {
		return m, nil
	}
	m, err := construct()
	if err != nil {
		return nil, err
	}
	r.managers[uuid] = m
	return m, nil
}

func (r *Registry) stream(uuid string, construct func() (*Stream, error)) (*Stream, error) {
	if s, ok := r.streams[uuid]; ok {
		return s, nil
	}
	s, err := construct()
	if err != nil {
		return nil, err
	}
	r.streams[uuid] = s
	return s, nil
}

func (r *Registry) object(uuid string, construct func() (*Object, error)) (*Object, error) {
	if o, ok := r.objects[uuid]; ok {
		return o, nil
	}
	o, err := construct()
	if err != nil {
		return nil, err
	}
	r.objects[uuid] = o
	return o, nil
}

func (r *Registry) removeManager(uuid string) { delete(r.managers, uuid) }
func (r *Registry) removeStream(uuid string)  { delete(r.streams, uuid) }
func (r *Registry) removeObject(uuid string)  { delete(r.objects, uuid) }
