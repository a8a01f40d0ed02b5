package editorial

import (
	"testing"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestWrapStoreErr_Classification(t *testing.T) {
	t.Run("missing row is ErrNotFound", func(t *testing.T) {
		err := wrapStoreErr(gorm.ErrRecordNotFound, "lookup failed")
		if !errors.Is(errors.Cause(err), ErrNotFound) {
			t.Errorf("err = %v; want ErrNotFound cause", err)
		}
		if IsRetryable(err) {
			t.Error("missing rows must not be retryable")
		}
	})

	t.Run("permanent driver failures are not retryable", func(t *testing.T) {
		for _, permanent := range []error{
			gorm.ErrDuplicatedKey,
			gorm.ErrForeignKeyViolated,
			gorm.ErrCheckConstraintViolated,
			gorm.ErrInvalidField,
			gorm.ErrPrimaryKeyRequired,
		} {
			wrapped := wrapStoreErr(permanent, "write failed")
			if errors.Is(errors.Cause(wrapped), ErrStoreUnavailable) {
				t.Errorf("%v classified as transient", permanent)
			}
			if IsRetryable(wrapped) {
				t.Errorf("%v must not be retryable", permanent)
			}
			if !errors.Is(wrapped, permanent) {
				t.Errorf("wrapped error lost its cause %v", permanent)
			}
		}
	})

	t.Run("unknown driver failures are transient", func(t *testing.T) {
		wrapped := wrapStoreErr(errors.New("connection reset by peer"), "query failed")
		if !errors.Is(errors.Cause(wrapped), ErrStoreUnavailable) {
			t.Errorf("err = %v; want ErrStoreUnavailable cause", wrapped)
		}
		if !IsRetryable(wrapped) {
			t.Error("transient store failures must be retryable")
		}
	})
}

func TestApplyPager_DoesNotMutateCallerPager(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	pager := &Pager{}
	applyPager(db.Model(&StoryPo{}), pager)
	if pager.Page != 0 || pager.Size != 0 {
		t.Errorf("defaults written back into the caller's pager: %+v", pager)
	}

	partial := &Pager{Page: 3}
	applyPager(db.Model(&StoryPo{}), partial)
	if partial.Size != 0 {
		t.Errorf("size default written back into the caller's pager: %+v", partial)
	}

	// nil pager takes the defaults without panicking
	applyPager(db.Model(&StoryPo{}), nil)
}
