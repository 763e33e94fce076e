package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Task représente une tâche à exécuter
type Task func(ctx context.Context) error

// WorkerPool gère un pool de workers pour traiter des tâches en parallèle
// Utilisé pour scorer les clients par lots (PredictBatches).
type WorkerPool struct {
	workerCount int
	tasks       chan Task
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc

	mu   sync.Mutex
	errs []error
}

// NewWorkerPool crée un nouveau pool de workers rattaché au contexte parent
func NewWorkerPool(parent context.Context, workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(parent)
	return &WorkerPool{
		workerCount: workerCount,
		tasks:       make(chan Task, workerCount*2),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// worker est la routine d'exécution des tâches
// La première erreur annule le contexte: les tâches restantes sont abandonnées.
func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case task, ok := <-wp.tasks:
			if !ok {
				return
			}
			if err := task(wp.ctx); err != nil {
				wp.mu.Lock()
				wp.errs = append(wp.errs, err)
				wp.mu.Unlock()
				wp.cancel()
			}
		}
	}
}

// Start démarre les workers
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Submit soumet une tâche au pool
func (wp *WorkerPool) Submit(task Task) error {
	select {
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is stopped: %w", wp.ctx.Err())
	case wp.tasks <- task:
		return nil
	}
}

// Wait ferme le canal de tâches, attend la fin des workers et retourne les erreurs collectées
func (wp *WorkerPool) Wait() error {
	close(wp.tasks)
	wp.wg.Wait()
	ctxErr := wp.ctx.Err()
	wp.cancel()

	wp.mu.Lock()
	defer wp.mu.Unlock()
	if len(wp.errs) == 0 && ctxErr != nil {
		return ctxErr
	}
	return errors.Join(wp.errs...)
}

// WorkerCount retourne le nombre de workers
func (wp *WorkerPool) WorkerCount() int {
	return wp.workerCount
}
