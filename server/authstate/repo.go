// Package authstate tracks in-flight authorization redirects keyed by the
// opaque state parameter, so the callback can reject forged or replayed
// responses and match the ID token nonce.
package authstate

import "time"

type FlowState struct {
	Nonce     string
	ReturnURL string
	CreatedAt time.Time
}

type Repo interface {
	Upsert(state string, flowState *FlowState) error
	Get(state string) (*FlowState, error)
	Delete(state string) error
}
