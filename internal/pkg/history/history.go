// Package history 提供基于整份快照的线性撤销/重做栈。
package history

// OpInitial 历史第一条记录的操作类型
const OpInitial = "initial"

// Entry 一条历史记录
type Entry[T any] struct {
	Snapshot  T
	Operation string
}

// Stack 线性撤销/重做栈。
//
// 每条快照在写入和读出时都经 clone 深拷贝，外部对返回值的修改不会影响历史。
// Stack 不是并发安全的，调用方需要自行加锁。
type Stack[T any] struct {
	entries []Entry[T]
	pointer int
	clone   func(T) T
	equal   func(a, b T) bool
	limit   int
}

// New 以 initial 为第一条记录创建栈。limit > 0 时只保留最近 limit 条记录
func New[T any](initial T, clone func(T) T, equal func(a, b T) bool, limit int) *Stack[T] {
	s := &Stack[T]{clone: clone, equal: equal, limit: limit}
	s.Reset(initial)
	return s
}

// Reset 丢弃全部历史，以 snapshot 作为新的初始状态
func (s *Stack[T]) Reset(snapshot T) {
	s.entries = []Entry[T]{{Snapshot: s.clone(snapshot), Operation: OpInitial}}
	s.pointer = 0
}

// Record 记录新快照。与当前快照结构相等时不做任何事并返回 false；
// 否则丢弃指针之后的重做分支，追加快照并移动指针。
func (s *Stack[T]) Record(snapshot T, operation string) bool {
	if s.equal(s.entries[s.pointer].Snapshot, snapshot) {
		return false
	}

	s.entries = append(s.entries[:s.pointer+1], Entry[T]{
		Snapshot:  s.clone(snapshot),
		Operation: operation,
	})
	s.pointer = len(s.entries) - 1

	if s.limit > 0 && len(s.entries) > s.limit {
		drop := len(s.entries) - s.limit
		s.entries = append([]Entry[T](nil), s.entries[drop:]...)
		s.pointer -= drop
	}
	return true
}

// Undo 指针左移一步，已在起点时不动；返回当前快照的副本
func (s *Stack[T]) Undo() (T, bool) {
	if !s.CanUndo() {
		return s.Current(), false
	}
	s.pointer--
	return s.Current(), true
}

// Redo 指针右移一步，已在末尾时不动；返回当前快照的副本
func (s *Stack[T]) Redo() (T, bool) {
	if !s.CanRedo() {
		return s.Current(), false
	}
	s.pointer++
	return s.Current(), true
}

func (s *Stack[T]) CanUndo() bool {
	return s.pointer > 0
}

func (s *Stack[T]) CanRedo() bool {
	return s.pointer < len(s.entries)-1
}

// Current 当前快照的副本
func (s *Stack[T]) Current() T {
	return s.clone(s.entries[s.pointer].Snapshot)
}

// Operation 当前快照的操作类型
func (s *Stack[T]) Operation() string {
	return s.entries[s.pointer].Operation
}

func (s *Stack[T]) Len() int {
	return len(s.entries)
}

func (s *Stack[T]) Pointer() int {
	return s.pointer
}
