package inmemdb

import (
	"sync"

	"github.com/fundisha/backend/core/assignment"
	"github.com/fundisha/backend/core/user"
)

// DB is a process-local store backing the repositories in tests and
// debug runs. All access goes through the table mutexes.
type DB struct {
	user       *userTable
	assignment *assignmentTable
}

type userTable struct {
	mutex sync.RWMutex
	table map[string]*user.User
}

type assignmentTable struct {
	mutex sync.RWMutex
	table map[string]*assignment.Assignment
	byRef map[string]string // payment_ref -> assignment id
}

func Open() *DB {
	return &DB{
		user:       &userTable{table: make(map[string]*user.User)},
		assignment: &assignmentTable{table: make(map[string]*assignment.Assignment), byRef: make(map[string]string)},
	}
}

// Reset drops all rows. Test helper.
func (db *DB) Reset() {
	db.user.mutex.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.mutex.Unlock()

	db.assignment.mutex.Lock()
	db.assignment.table = make(map[string]*assignment.Assignment)
	db.assignment.byRef = make(map[string]string)
	db.assignment.mutex.Unlock()
}
