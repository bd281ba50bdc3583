package tree

import (
	"database/sql/driver"

	"github.com/lib/pq"
)

func int64Array(ids []int64) driver.Valuer {
	return pq.Array(ids)
}
