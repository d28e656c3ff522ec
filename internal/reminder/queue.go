package reminder

import "sync"

// Queue is a Notifier that holds reminders until the patient's next
// turn, where they are drained and prefixed to the reply.
type Queue struct {
	mu      sync.Mutex
	pending map[string][]string
}

func NewQueue() *Queue {
	return &Queue{pending: make(map[string][]string)}
}

func (q *Queue) Notify(patientID, message string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[patientID] = append(q.pending[patientID], message)
}

// Drain returns and clears the patient's pending reminders.
func (q *Queue) Drain(patientID string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	msgs := q.pending[patientID]
	delete(q.pending, patientID)
	return msgs
}
