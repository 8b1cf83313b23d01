package intercept

// ScopeApp is the scope tag carried by forged results. The genuine library
// reports it for identifiers scoped to a single developer's app set, which
// is what the target app always requests.
const ScopeApp = 1

// AppSetIDInfo mirrors the vendor result object handed to app callbacks.
type AppSetIDInfo struct {
	ID    string
	Scope int
}

// GetID matches the accessor name the app calls on the vendor object.
func (i AppSetIDInfo) GetID() string { return i.ID }

// GetScope matches the accessor name the app calls on the vendor object.
func (i AppSetIDInfo) GetScope() int { return i.Scope }

// CompletedTask is the already-finished asynchronous result the vendor
// library returns: the value is available immediately and success
// listeners fire inline on registration.
type CompletedTask struct {
	result AppSetIDInfo
}

// NewCompletedTask wraps a result in its completed-task form.
func NewCompletedTask(result AppSetIDInfo) *CompletedTask {
	return &CompletedTask{result: result}
}

func (t *CompletedTask) IsComplete() bool     { return true }
func (t *CompletedTask) IsSuccessful() bool   { return true }
func (t *CompletedTask) Result() AppSetIDInfo { return t.result }

// AddOnSuccessListener invokes fn immediately, the way a finished vendor
// task would, and returns the task for chaining.
func (t *CompletedTask) AddOnSuccessListener(fn func(AppSetIDInfo)) *CompletedTask {
	fn(t.result)
	return t
}

// Client mirrors the vendor client surface reached through the public
// entry point. A forged client serves the staged identifier to every
// lookup.
type Client struct {
	info AppSetIDInfo
}

// GetAppSetIdInfo returns the staged identifier as a completed task.
func (c Client) GetAppSetIdInfo() *CompletedTask {
	return NewCompletedTask(c.info)
}
