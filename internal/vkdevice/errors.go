package vkdevice

import (
	"github.com/pkg/errors"
	"github.com/vulkan-go/vulkan"

	"Lumen/internal/gpu"
)

// check turns a non-success result into an error naming op.
func check(res vulkan.Result, op string) error {
	if res == vulkan.Success {
		return nil
	}
	err := vulkan.Error(res)
	if err == nil {
		err = errors.Errorf("vulkan result %d", res)
	}
	return errors.Wrap(err, op)
}

// presentResult interprets the result of an acquire or present. Suboptimal
// counts as success; an out-of-date surface becomes gpu.ErrOutOfDate.
func presentResult(res vulkan.Result, op string) (suboptimal bool, err error) {
	switch res {
	case vulkan.Success:
		return false, nil
	case vulkan.Suboptimal:
		return true, nil
	case vulkan.ErrorOutOfDate:
		return false, errors.Wrap(gpu.ErrOutOfDate, op)
	}
	return false, check(res, op)
}
