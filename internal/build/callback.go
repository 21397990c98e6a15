package build

// Callback receives the progress of one build.
type Callback interface {
	OnLog(message string)
	OnSuccess(artifactPath string)
	OnFailure(reason string)
}

// CallbackFuncs adapts plain functions to Callback. Nil fields are ignored.
type CallbackFuncs struct {
	Log     func(message string)
	Success func(artifactPath string)
	Failure func(reason string)
}

func (c CallbackFuncs) OnLog(message string) {
	if c.Log != nil {
		c.Log(message)
	}
}

func (c CallbackFuncs) OnSuccess(artifactPath string) {
	if c.Success != nil {
		c.Success(artifactPath)
	}
}

func (c CallbackFuncs) OnFailure(reason string) {
	if c.Failure != nil {
		c.Failure(reason)
	}
}
