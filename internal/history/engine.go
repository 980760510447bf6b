package history

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DefaultMaxDepth bounds the undo stack
const DefaultMaxDepth = 50

// ErrIndexOutOfRange is returned by JumpTo for a target outside the timeline
var ErrIndexOutOfRange = errors.New("history index out of range")

// Engine owns the undo and redo stacks of one document. All methods are
// serialised by a single mutex.
type Engine struct {
	mu       sync.Mutex
	doc      Document
	maxDepth int
	undo     []Command
	redo     []Command
	logger   *zap.Logger
}

// NewEngine creates an engine over doc. maxDepth <= 0 uses DefaultMaxDepth.
func NewEngine(doc Document, maxDepth int, logger *zap.Logger) *Engine {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Engine{doc: doc, maxDepth: maxDepth, logger: logger}
}

// Add registers cmd, whose effect the caller has already applied. The redo
// stack is discarded and the oldest entry is evicted past maxDepth.
func (e *Engine) Add(cmd Command) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.undo = append(e.undo, cmd)
	if len(e.undo) > e.maxDepth {
		evicted := e.undo[0]
		e.undo = append([]Command(nil), e.undo[len(e.undo)-e.maxDepth:]...)
		e.logger.Debug("evicted oldest history entry", zap.String("command_id", evicted.ID))
	}
	e.redo = nil

	e.logger.Info("command added to history",
		zap.String("type", string(cmd.Kind)),
		zap.String("description", cmd.Description),
		zap.Int("undo_stack_size", len(e.undo)),
	)
}

// Undo reverts the newest command and moves it to the redo stack. It returns
// nil when there is nothing to undo. If the revert fails the stacks are left
// unchanged.
func (e *Engine) Undo() (*Command, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.undoLocked()
}

// Redo reapplies the most recently undone command. It returns nil when there
// is nothing to redo.
func (e *Engine) Redo() (*Command, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.redoLocked()
}

func (e *Engine) undoLocked() (*Command, error) {
	if len(e.undo) == 0 {
		e.logger.Warn("nothing to undo")
		return nil, nil
	}

	cmd := e.undo[len(e.undo)-1]
	if err := Revert(e.doc, cmd); err != nil {
		return nil, fmt.Errorf("failed to undo %s: %w", cmd.Kind, err)
	}
	e.undo = e.undo[:len(e.undo)-1]
	e.redo = append(e.redo, cmd)

	e.logger.Info("undo executed",
		zap.String("type", string(cmd.Kind)),
		zap.String("description", cmd.Description),
		zap.Int("undo_stack_size", len(e.undo)),
		zap.Int("redo_stack_size", len(e.redo)),
	)
	return &cmd, nil
}

func (e *Engine) redoLocked() (*Command, error) {
	if len(e.redo) == 0 {
		e.logger.Warn("nothing to redo")
		return nil, nil
	}

	cmd := e.redo[len(e.redo)-1]
	if err := Apply(e.doc, cmd); err != nil {
		return nil, fmt.Errorf("failed to redo %s: %w", cmd.Kind, err)
	}
	e.redo = e.redo[:len(e.redo)-1]
	e.undo = append(e.undo, cmd)

	e.logger.Info("redo executed",
		zap.String("type", string(cmd.Kind)),
		zap.String("description", cmd.Description),
		zap.Int("undo_stack_size", len(e.undo)),
		zap.Int("redo_stack_size", len(e.redo)),
	)
	return &cmd, nil
}

// JumpTo undoes or redoes until the undo stack's top is at targetIndex on the
// timeline (undo entries oldest first, then redo entries most recently undone
// first). -1 undoes everything. It returns the number of steps taken.
// If a step fails, the steps already taken are walked back before the error
// is returned, so the stacks end where they started.
func (e *Engine) JumpTo(targetIndex int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if targetIndex < -1 || targetIndex >= len(e.undo)+len(e.redo) {
		return 0, fmt.Errorf("%w: %d", ErrIndexOutOfRange, targetIndex)
	}

	steps := 0
	for len(e.undo)-1 > targetIndex {
		if _, err := e.undoLocked(); err != nil {
			return 0, e.rollback(err, steps, e.redoLocked)
		}
		steps++
	}
	for len(e.undo)-1 < targetIndex {
		if _, err := e.redoLocked(); err != nil {
			return 0, e.rollback(err, steps, e.undoLocked)
		}
		steps++
	}
	return steps, nil
}

func (e *Engine) rollback(cause error, steps int, back func() (*Command, error)) error {
	for i := 0; i < steps; i++ {
		if _, err := back(); err != nil {
			e.logger.Error("failed to roll back history jump", zap.Int("remaining", steps-i), zap.Error(err))
			return errors.Join(cause, fmt.Errorf("failed to roll back jump: %w", err))
		}
	}
	return cause
}

// CanUndo reports whether the undo stack is non-empty
func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.undo) > 0
}

// CanRedo reports whether the redo stack is non-empty
func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.redo) > 0
}

// Clear empties both stacks
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.undo = nil
	e.redo = nil
	e.logger.Info("history cleared")
}

// History returns the undo stack, oldest first
func (e *Engine) History() []Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Command(nil), e.undo...)
}

// RedoStack returns the redo stack, bottom first
func (e *Engine) RedoStack() []Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Command(nil), e.redo...)
}

// Search returns undo entries whose description or kind contains query,
// newest first. An empty query returns every entry.
func (e *Engine) Search(query string) []Command {
	e.mu.Lock()
	defer e.mu.Unlock()

	q := strings.ToLower(query)
	var matches []Command
	for i := len(e.undo) - 1; i >= 0; i-- {
		cmd := e.undo[i]
		if q == "" || strings.Contains(strings.ToLower(cmd.Description), q) || strings.Contains(string(cmd.Kind), q) {
			matches = append(matches, cmd)
		}
	}
	return matches
}

// State is a point-in-time view of both stacks
type State struct {
	Undo         []Command `json:"undo"`
	Redo         []Command `json:"redo"`
	CanUndo      bool      `json:"canUndo"`
	CanRedo      bool      `json:"canRedo"`
	CurrentIndex int       `json:"currentIndex"`
	MaxDepth     int       `json:"maxDepth"`
}

// State returns copies of both stacks
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Undo:         append([]Command{}, e.undo...),
		Redo:         append([]Command{}, e.redo...),
		CanUndo:      len(e.undo) > 0,
		CanRedo:      len(e.redo) > 0,
		CurrentIndex: len(e.undo) - 1,
		MaxDepth:     e.maxDepth,
	}
}
