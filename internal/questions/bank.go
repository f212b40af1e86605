// internal/questions/bank.go
package questions

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/quizduel/internal/models"
	"gopkg.in/yaml.v3"
)

// bankFile is the on-disk layout of a question bank:
//
//	subjects:
//	  Science:
//	    - prompt: "H2O is?"
//	      options: [Water, Salt]
//	      correct: 0
type bankFile struct {
	Subjects map[string][]models.Question `yaml:"subjects"`
}

// bankNamespace derives stable ids for questions the bank file leaves unnamed,
// so reloading the same file yields the same ids.
var bankNamespace = uuid.MustParse("0b6f4c1e-7d2a-4e8b-9a1f-5c3d2e1b0a99")

// Bank is an in-memory Provider. It is safe for concurrent use.
type Bank struct {
	mu       sync.RWMutex
	subjects map[string][]models.Question
}

// NewBank returns an empty bank.
func NewBank() *Bank {
	return &Bank{subjects: make(map[string][]models.Question)}
}

// LoadBankFile reads a YAML question bank from path.
func LoadBankFile(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question bank %s: %w", path, err)
	}
	return ParseBank(data)
}

// ParseBank decodes a YAML question bank.
func ParseBank(data []byte) (*Bank, error) {
	var f bankFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse question bank: %w", err)
	}
	b := NewBank()
	for subject, qs := range f.Subjects {
		if err := b.Add(subject, qs...); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Add validates and stores questions under subject. Missing ids are derived
// from the subject and prompt.
func (b *Bank) Add(subject string, qs ...models.Question) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return fmt.Errorf("question subject must not be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range qs {
		if q.ID == uuid.Nil {
			q.ID = uuid.NewSHA1(bankNamespace, []byte(subject+"\x00"+q.Prompt))
		}
		q.Subject = subject
		for _, existing := range b.subjects[subject] {
			if existing.ID == q.ID {
				return fmt.Errorf("duplicate question %s (%q) in %s", q.ID, q.Prompt, subject)
			}
		}
		if len(q.Options) < 2 {
			return fmt.Errorf("question %q in %s needs at least two options", q.Prompt, subject)
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return fmt.Errorf("question %q in %s has correct index %d out of range", q.Prompt, subject, q.CorrectIndex)
		}
		b.subjects[subject] = append(b.subjects[subject], q)
	}
	return nil
}

// All returns every question, grouped by subject in alphabetical order.
func (b *Bank) All() []models.Question {
	subjects, _ := b.ListSubjects(context.Background())

	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []models.Question
	for _, s := range subjects {
		out = append(out, b.subjects[s]...)
	}
	return out
}

// ListSubjects returns the subjects in alphabetical order.
func (b *Bank) ListSubjects(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.subjects))
	for s := range b.subjects {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// DrawQuestions samples without replacement. Fewer than count questions are
// returned when the subject is small.
func (b *Bank) DrawQuestions(_ context.Context, subject string, count int) ([]models.Question, error) {
	b.mu.RLock()
	pool, ok := b.subjects[subject]
	b.mu.RUnlock()
	if !ok || len(pool) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubject, subject)
	}
	if count <= 0 {
		return nil, nil
	}

	perm := rand.Perm(len(pool))
	if count > len(perm) {
		count = len(perm)
	}
	out := make([]models.Question, count)
	for i := 0; i < count; i++ {
		q := pool[perm[i]]
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out, nil
}
