package feed

// Hooks receives session lifecycle notifications. All hooks run inline on
// the goroutine that caused the transition, while the controller lock is
// held: they must return quickly and must not call back into the
// Controller. Nil hooks are skipped.
//
// Cardinality: OnReady and OnAlmostDone are edge-triggered readiness
// transitions and alternate; once a session ends, OnReady stays latched and
// OnAlmostDone never fires again. OnPause reports explicit pause state
// changes. OnFinish fires exactly once per session, on natural drain, Stop,
// or source error. OnError fires at most once, before OnFinish.
type Hooks struct {
	OnReady      func()
	OnAlmostDone func()
	OnPause      func(paused bool)
	OnFinish     func()
	OnError      func(err error)
}
