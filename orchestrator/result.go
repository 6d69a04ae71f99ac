package orchestrator

// StageResult is the outcome of one pipeline stage or collaborator call.
// A failed result carries the reason; the pipeline decides how to degrade.
type StageResult[T any] struct {
	Value T
	Err   error
}

func Succeeded[T any](v T) StageResult[T] {
	return StageResult[T]{Value: v}
}

func Failed[T any](err error) StageResult[T] {
	return StageResult[T]{Err: err}
}

func (r StageResult[T]) OK() bool {
	return r.Err == nil
}

// Fragments collects the per-query outputs of a retrieval stage.
type Fragments struct {
	Texts    []string
	Calls    int
	Failures int
}

func (f *Fragments) add(r StageResult[string]) {
	f.Calls++
	if !r.OK() {
		f.Failures++
		return
	}
	if r.Value != "" {
		f.Texts = append(f.Texts, r.Value)
	}
}
