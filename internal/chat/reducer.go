package chat

// Event is a discrete input to Reduce.
type Event interface {
	eventName() string
}

// MessageSent appends the user's entry and starts a request.
type MessageSent struct{ Entry Entry }

// RequestSucceeded carries the reply. AudioURL is empty when there is no narration.
type RequestSucceeded struct {
	Generation uint64
	Reply      Entry
	AudioURL   string
}

// RequestFailed carries the fallback entry to show.
type RequestFailed struct {
	Generation uint64
	Fallback   Entry
}

type NarrationStarted struct{}

type NarrationEnded struct{}

// NarrationFailed is raised when narration cannot be loaded or played.
type NarrationFailed struct{}

type Cleared struct{}

type ReplayStarted struct{}

func (MessageSent) eventName() string      { return "message_sent" }
func (RequestSucceeded) eventName() string { return "request_succeeded" }
func (RequestFailed) eventName() string    { return "request_failed" }
func (NarrationStarted) eventName() string { return "narration_started" }
func (NarrationEnded) eventName() string   { return "narration_ended" }
func (NarrationFailed) eventName() string  { return "narration_failed" }
func (Cleared) eventName() string          { return "cleared" }
func (ReplayStarted) eventName() string    { return "replay_started" }

// Reduce applies ev to s and returns the next state. s is not modified.
func Reduce(s State, ev Event) State {
	next := s.Clone()

	switch e := ev.(type) {
	case MessageSent:
		if s.InFlight {
			return next
		}
		commitPending(&next)
		next.Transcript = append(next.Transcript, e.Entry)
		next.Thinking = true
		next.InFlight = true

	case RequestSucceeded:
		next.InFlight = false
		if e.Generation != s.Generation {
			return next
		}
		next.Thinking = false
		if e.AudioURL != "" {
			commitPending(&next)
			reply := e.Reply
			next.Pending = &reply
			next.AudioURL = e.AudioURL
			next.Talking = true
		} else {
			next.Transcript = append(next.Transcript, e.Reply)
			next.Talking = false
		}

	case RequestFailed:
		next.InFlight = false
		if e.Generation != s.Generation {
			return next
		}
		next.Transcript = append(next.Transcript, e.Fallback)
		next.Thinking = false
		next.Talking = false

	case NarrationStarted, ReplayStarted:
		if next.AudioURL != "" {
			next.Talking = true
		}

	case NarrationEnded, NarrationFailed:
		commitPending(&next)
		next.Talking = false

	case Cleared:
		next.Transcript = nil
		next.Pending = nil
		next.AudioURL = ""
		next.Thinking = false
		next.Talking = false
		next.Generation++
	}
	return next
}

func commitPending(s *State) {
	if s.Pending == nil {
		return
	}
	s.Transcript = append(s.Transcript, *s.Pending)
	s.Pending = nil
}
