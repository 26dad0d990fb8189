package recipient

// Deduplicator admits each phone number at most once per ingestion call,
// counting numbers already stored for the campaign as seen.
type Deduplicator struct {
	seen map[string]struct{}
}

func NewDeduplicator(existing map[string]struct{}) *Deduplicator {
	seen := make(map[string]struct{}, len(existing))
	for p := range existing {
		seen[p] = struct{}{}
	}
	return &Deduplicator{seen: seen}
}

// Admit returns true the first time phone is offered.
func (d *Deduplicator) Admit(phone string) bool {
	if _, ok := d.seen[phone]; ok {
		return false
	}
	d.seen[phone] = struct{}{}
	return true
}
