package push

// Entities named in invalidation frames.
const (
	EntityAppointment = "appointment"
	EntityCustomer    = "customer"
	EntityUser        = "user"
	EntitySettings    = "settings"
	EntityService     = "service"
)

const (
	frameInvalidate = "invalidate"
	framePing       = "ping"
	framePong       = "pong"
)

// Invalidation tells the client that an entity changed server-side.
type Invalidation struct {
	Type   string `json:"type"`
	Entity string `json:"entity"`
	ID     string `json:"id,omitempty"`
	Action string `json:"action,omitempty"` // created, updated, deleted
	OrgID  string `json:"organization_id,omitempty"`
}

type eventKey struct {
	entity string
	id     string
}
