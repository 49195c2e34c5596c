package session

import (
	"slices"
	"strings"

	"github.com/alfredjeanlab/gatekeep/internal/model"
)

// AllProcessed reports whether every user has a scan outcome. An empty map
// reports false, so nothing fires before the first users snapshot arrives.
func AllProcessed(users map[string]*model.User) bool {
	if len(users) == 0 {
		return false
	}
	for _, u := range users {
		if !u.Processed() {
			return false
		}
	}
	return true
}

// BatchKey identifies a set of users independent of map order.
func BatchKey(users map[string]*model.User) string {
	ids := make([]string, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return strings.Join(ids, ",")
}
