package agent

import (
	"context"
	"iter"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/travel-agent/pkg/persistence/transcripts"
)

const DefaultAcknowledgement = "Let me help you with your travel request..."

// Reply is one response unit: text plus completion flags.
type Reply struct {
	Content          string `json:"content"`
	IsTaskComplete   bool   `json:"isTaskComplete"`
	RequireUserInput bool   `json:"requireUserInput"`
}

// Responder answers user messages with canned replies and records every
// exchange in a per-session transcript.
type Responder struct {
	store         transcripts.Store
	classifier    *Classifier
	ack           string
	thinkingDelay time.Duration
	chunkDelay    time.Duration
	chunkSize     int
}

type Option func(*Responder)

func WithThinkingDelay(d time.Duration) Option {
	return func(r *Responder) { r.thinkingDelay = d }
}

func WithChunkDelay(d time.Duration) Option {
	return func(r *Responder) { r.chunkDelay = d }
}

func WithChunkSize(n int) Option {
	return func(r *Responder) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

func WithAcknowledgement(text string) Option {
	return func(r *Responder) { r.ack = text }
}

// WithRules replaces the default rule list; fallback is used when nothing matches.
func WithRules(rules []Rule, fallback string) Option {
	return func(r *Responder) { r.classifier = NewClassifier(rules, fallback) }
}

// NewResponder builds a Responder over store. A nil store gets an in-memory one.
func NewResponder(store transcripts.Store, opts ...Option) *Responder {
	if store == nil {
		store = transcripts.NewInMemoryStore()
	}
	r := &Responder{
		store:         store,
		classifier:    defaultClassifier,
		ack:           DefaultAcknowledgement,
		thinkingDelay: 500 * time.Millisecond,
		chunkDelay:    200 * time.Millisecond,
		chunkSize:     3,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Category reports which rule the responder would pick for input.
func (r *Responder) Category(input string) Category {
	cat, _ := r.classifier.Classify(input)
	return cat
}

// Transcript returns a copy of the session's turns.
func (r *Responder) Transcript(ctx context.Context, sessionID string) ([]transcripts.Turn, error) {
	return r.store.Turns(ctx, sessionID)
}

// Sessions lists the session ids that have at least one turn.
func (r *Responder) Sessions(ctx context.Context) ([]string, error) {
	return r.store.Sessions(ctx)
}

// Respond appends the user turn, picks a canned reply, appends the assistant turn
// and returns the complete reply. Errors only come from the transcript store.
func (r *Responder) Respond(ctx context.Context, userInput, sessionID string) (Reply, error) {
	if err := r.appendTurn(ctx, sessionID, transcripts.RoleUser, userInput); err != nil {
		return Reply{}, err
	}
	_, reply := r.classifier.Classify(userInput)
	if err := r.appendTurn(ctx, sessionID, transcripts.RoleAssistant, reply); err != nil {
		return Reply{}, err
	}
	return Reply{Content: reply, IsTaskComplete: true}, nil
}

// RespondStream returns a lazy sequence of partial replies converging to the
// final one. Every range over the sequence is a fresh call.
//
// Emission order: acknowledgement, one accumulated prefix per chunk of words,
// then the final reply with IsTaskComplete set. The assistant turn is appended
// exactly once per started call, also when the consumer stops early or ctx is
// cancelled. Cancellation is reported as a last (Reply{}, ctx.Err()) pair.
func (r *Responder) RespondStream(ctx context.Context, userInput, sessionID string) iter.Seq2[Reply, error] {
	return func(yield func(Reply, error) bool) {
		if err := r.appendTurn(ctx, sessionID, transcripts.RoleUser, userInput); err != nil {
			yield(Reply{}, err)
			return
		}

		var reply string
		computed, answered := false, false
		defer func() {
			if answered {
				return
			}
			if !computed {
				_, reply = r.classifier.Classify(userInput)
			}
			if err := r.appendTurn(context.WithoutCancel(ctx), sessionID, transcripts.RoleAssistant, reply); err != nil {
				log.Warn().Err(err).Str("component", "agent").Str("session_id", sessionID).Msg("could not record reply of abandoned stream")
			}
		}()

		if !yield(Reply{Content: r.ack}, nil) {
			return
		}
		if err := pause(ctx, r.thinkingDelay); err != nil {
			yield(Reply{}, err)
			return
		}

		_, reply = r.classifier.Classify(userInput)
		computed = true

		for _, partial := range AccumulateWords(reply, r.chunkSize) {
			if !yield(Reply{Content: partial}, nil) {
				return
			}
			if err := pause(ctx, r.chunkDelay); err != nil {
				yield(Reply{}, err)
				return
			}
		}

		answered = true
		if err := r.appendTurn(ctx, sessionID, transcripts.RoleAssistant, reply); err != nil {
			yield(Reply{}, err)
			return
		}
		yield(Reply{Content: reply, IsTaskComplete: true}, nil)
	}
}

func (r *Responder) appendTurn(ctx context.Context, sessionID string, role transcripts.Role, content string) error {
	if err := r.store.Append(ctx, sessionID, transcripts.Turn{Role: role, Content: content}); err != nil {
		return errors.Wrapf(err, "append %s turn", role)
	}
	return nil
}

// AccumulateWords splits text into whitespace-delimited words and returns, for
// every group of size words, the prefix of text ending at the group's last word.
// The original spacing of text is kept, so the last prefix equals the trimmed text.
func AccumulateWords(text string, size int) []string {
	if size <= 0 {
		size = 1
	}
	start := -1
	var ends []int
	inWord := false
	for i, ch := range text {
		if unicode.IsSpace(ch) {
			if inWord {
				ends = append(ends, i)
				inWord = false
			}
			continue
		}
		if !inWord {
			if start < 0 {
				start = i
			}
			inWord = true
		}
	}
	if inWord {
		ends = append(ends, len(text))
	}

	out := make([]string, 0, (len(ends)+size-1)/size)
	for g := 0; g < len(ends); g += size {
		last := min(g+size, len(ends)) - 1
		out = append(out, text[start:ends[last]])
	}
	return out
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
