//go:generate go run github.com/vektra/mockery/v2 --all --with-expecter --output=../testdata/mocks

package reference

import (
	"copytrader/model"
)

type Notifier interface {
	Notify(string)
	OnJobDone(job model.CopyJob)
	OnError(err error)
}
