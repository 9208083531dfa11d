package domain

type ChangeAction string

const (
	ActionAdded           ChangeAction = "added"
	ActionRemoved         ChangeAction = "removed"
	ActionQuantityChanged ChangeAction = "quantity_changed"
	ActionOwnerChanged    ChangeAction = "owner_changed"
)

// ChangeNotice is the lightweight broadcast emitted after every committed
// mutation. It names what changed but never carries the resulting state;
// peers answer it with a full-sync request.
type ChangeNotice struct {
	Action  ChangeAction `json:"action"`
	EntryID string       `json:"entry_id"`
	Actor   string       `json:"actor"`
	Amount  int          `json:"amount"`
	Detail  string       `json:"detail,omitempty"`
	Version uint64       `json:"version"`
}
