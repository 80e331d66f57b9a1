package workflow

import "sync"

// keyedLocks сериализует read-modify-write по конкретному request id:
// два согласующих, голосующих одновременно, проходят критическую секцию
// по очереди, и "выигрывает" ровно один.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*refLock)}
}

// Acquire берет замок по ключу и возвращает функцию освобождения.
// Счетчик ссылок не дает мапе расти бесконечно на разрешенных запросах.
func (k *keyedLocks) Acquire(id string) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &refLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
