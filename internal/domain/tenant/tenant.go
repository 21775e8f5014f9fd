// Package tenant holds the explicit tenant value threaded through every core call.
package tenant

import (
	"fmt"
	"slices"

	"github.com/kailas-cloud/machinegpt/internal/domain"
)

// Context identifies the producer (and optionally end customer and user) a call acts for.
// It is immutable: the machine set is copied on construction and on read.
type Context struct {
	producerID    int64
	endCustomerID int64
	userID        int64
	machineIDs    map[int64]struct{}
}

// New builds a validated tenant context. Zero end customer / user ids mean "absent".
func New(producerID, endCustomerID, userID int64, machineIDs []int64) (Context, error) {
	c := Context{
		producerID:    producerID,
		endCustomerID: endCustomerID,
		userID:        userID,
		machineIDs:    make(map[int64]struct{}, len(machineIDs)),
	}
	for _, id := range machineIDs {
		c.machineIDs[id] = struct{}{}
	}
	if err := c.Validate(); err != nil {
		return Context{}, err
	}
	return c, nil
}

// ForProducer is a producer-only context, used by ingestion.
func ForProducer(producerID int64) (Context, error) {
	return New(producerID, 0, 0, nil)
}

// Validate rejects a context without a producer.
func (c Context) Validate() error {
	if c.producerID <= 0 {
		return domain.ErrTenantContextMissing
	}
	return nil
}

// ProducerID returns the owning producer.
func (c Context) ProducerID() int64 { return c.producerID }

// EndCustomerID returns the end customer, if any.
func (c Context) EndCustomerID() (int64, bool) { return c.endCustomerID, c.endCustomerID > 0 }

// UserID returns the acting user, if any.
func (c Context) UserID() (int64, bool) { return c.userID, c.userID > 0 }

// MachineIDs returns the authorized machines in ascending order.
func (c Context) MachineIDs() []int64 {
	out := make([]int64, 0, len(c.machineIDs))
	for id := range c.machineIDs {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Authorizes reports whether machineID is in the authorized set.
func (c Context) Authorizes(machineID int64) bool {
	_, ok := c.machineIDs[machineID]
	return ok
}

// Namespace is the vector store partition of this tenant.
func (c Context) Namespace() string { return Namespace(c.producerID) }

// Namespace returns "producer_{id}".
func Namespace(producerID int64) string {
	return fmt.Sprintf("producer_%d", producerID)
}
