package crawl

import "errors"

// ErrRunAborted is returned by Run when a result could not be persisted
// after every retry. The run stops dispatching; the error wraps the cause.
var ErrRunAborted = errors.New("crawl run aborted")
