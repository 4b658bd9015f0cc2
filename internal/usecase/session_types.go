package usecase

import (
	"quizmic/internal/domain"
)

// quizSession is the controller-owned session state. It is only touched
// with SessionController.mu held.
type quizSession struct {
	id          string
	participant domain.Participant
	prompts     []domain.Prompt
	index       int
	status      domain.SessionStatus
	recording   bool
	message     string
}

func (s *quizSession) currentPrompt() (domain.Prompt, bool) {
	if s.index < 0 || s.index >= len(s.prompts) {
		return domain.Prompt{}, false
	}
	return s.prompts[s.index], true
}

func (s *quizSession) snapshot() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		ID:           s.id,
		Participant:  s.participant,
		Status:       s.status,
		CurrentIndex: s.index,
		Total:        len(s.prompts),
		Recording:    s.recording,
		Message:      s.message,
	}
	if prompt, ok := s.currentPrompt(); ok {
		prompt.MediaRefs = append([]string(nil), prompt.MediaRefs...)
		snap.Current = &prompt
	}
	return snap
}
