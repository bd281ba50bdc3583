package repository

import "github.com/lib/pq"

// int64Array adapts an id slice for use with = ANY($n) predicates.
func int64Array(ids []int64) interface{} {
	return pq.Array(ids)
}
