package pipeline

// MoveCommand is one optimistic stage change. It records the origin captured
// when the drag started so it can compensate itself if the backend rejects
// the change.
type MoveCommand struct {
	DealID      string `json:"deal_id"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	seq         uint64
}

// Apply moves the deal to the destination stage.
func (c MoveCommand) Apply(store *DealStore) error {
	_, err := store.MoveDeal(c.DealID, c.Destination)
	return err
}

// Undo moves the deal back to the origin stage. A deal already sitting in
// the origin column is left where it is.
func (c MoveCommand) Undo(store *DealStore) error {
	deal, ok := store.Deal(c.DealID)
	if !ok {
		return ErrNotFound
	}
	if deal.StageID == c.Origin {
		return nil
	}
	_, err := store.MoveDeal(c.DealID, c.Origin)
	return err
}
