package domain

import (
	"math"
	"sort"

	"golang.org/x/exp/rand"

	shared "segmentation/internal/shared/domain"
)

// TrainTestSplit partitionne n lignes en indices d'apprentissage et de test (triés).
// Taille de test = ceil(testSize × n) ; testSize = 0 → tout en apprentissage.
func TrainTestSplit(n int, testSize float64, seed int64) (train, test []int, err error) {
	if n <= 0 {
		return nil, nil, shared.NewInvalidParameter("n", "doit être > 0, reçu %d", n)
	}
	if testSize < 0 || testSize >= 1 {
		return nil, nil, shared.NewInvalidParameter("test_size", "doit être dans [0, 1), reçu %g", testSize)
	}

	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest >= n {
		return nil, nil, shared.NewInvalidParameter("test_size", "aucune ligne d'apprentissage pour n=%d", n)
	}

	perm := rand.New(rand.NewSource(uint64(seed))).Perm(n)
	test = append([]int(nil), perm[:nTest]...)
	train = append([]int(nil), perm[nTest:]...)
	sort.Ints(test)
	sort.Ints(train)
	return train, test, nil
}
