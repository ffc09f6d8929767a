package invoicing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/angelmondragon/tradeledger/pkg/docstore"
	pkgerrors "github.com/angelmondragon/tradeledger/pkg/errors"
)

// NextNumber returns prefix followed by the largest numeric suffix among
// existing plus one, zero-padded to four digits. Numbers with another
// prefix or a non-numeric suffix are ignored.
func NextNumber(prefix string, existing []string) string {
	highest := 0
	for _, number := range existing {
		suffix, ok := strings.CutPrefix(number, prefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil || n < 0 {
			continue
		}
		highest = max(highest, n)
	}
	return fmt.Sprintf("%s%04d", prefix, highest+1)
}

// NextFromStore scans every document for its number. There is no stored
// counter; callers serialize creation with a lock.
func NextFromStore[T any](ctx context.Context, store docstore.Store[T], prefix string, numberOf func(T) string) (string, error) {
	docs, err := store.FindAll(ctx, docstore.Filter{}, docstore.FindOptions{})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan invoice numbers")
	}
	numbers := make([]string, 0, len(docs))
	for _, doc := range docs {
		numbers = append(numbers, numberOf(doc))
	}
	return NextNumber(prefix, numbers), nil
}
