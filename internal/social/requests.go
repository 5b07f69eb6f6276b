package social

// requests is the directed friend request relation. The outgoing and incoming
// indices are written only by add and remove, so they always agree.
type requests struct {
	out map[string]set // sender -> receivers
	in  map[string]set // receiver -> senders
}

func newRequests() *requests {
	return &requests{
		out: make(map[string]set),
		in:  make(map[string]set),
	}
}

func (r *requests) has(from, to string) bool {
	_, ok := r.out[from][to]
	return ok
}

func (r *requests) add(from, to string) {
	if r.out[from] == nil {
		r.out[from] = make(set)
	}
	if r.in[to] == nil {
		r.in[to] = make(set)
	}
	r.out[from][to] = struct{}{}
	r.in[to][from] = struct{}{}
}

func (r *requests) remove(from, to string) {
	delete(r.out[from], to)
	delete(r.in[to], from)
	if len(r.out[from]) == 0 {
		delete(r.out, from)
	}
	if len(r.in[to]) == 0 {
		delete(r.in, to)
	}
}

func (r *requests) outgoing(user string) []string {
	return r.out[user].sorted()
}

func (r *requests) incoming(user string) []string {
	return r.in[user].sorted()
}
