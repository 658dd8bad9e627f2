// Package redissentinel resolves current master address through redis sentinels.
package redissentinel

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/joomcode/errorx"
	"go.uber.org/zap"

	"github.com/joomcode/redisbulk/redis"
	"github.com/joomcode/redisbulk/redisdumb"
)

var (
	// Errors is a namespace for sentinel errors.
	Errors = errorx.NewNamespace("sentinel")
	// ErrNoMaster - sentinels answered, but none of them knows the master.
	ErrNoMaster = Errors.NewType("no_master", errorx.NotFound())
	// ErrSentinelsUnreachable - no sentinel answered.
	ErrSentinelsUnreachable = Errors.NewType("unreachable", redis.ErrTraitConnectivity)

	// EKMasterName - name of master set.
	EKMasterName = errorx.RegisterProperty("master_name")
)

// Opts is options for ResolveMaster.
type Opts struct {
	// Username and Password are used to authenticate at sentinels.
	Username string
	Password string
	// Timeout bounds each sentinel request. Default is redisdumb.DefaultTimeout.
	Timeout time.Duration
	// Logger receives per-sentinel failures. Nil means zap.L().
	Logger *zap.Logger
}

// ResolveMaster asks sentinels in order and returns first known master address.
func ResolveMaster(ctx context.Context, sentinels []string, name string, opts Opts) (string, error) {
	if len(sentinels) == 0 {
		return "", redis.ErrNoAddressProvided.New("no sentinel addresses given")
	}
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	answered := false
	var causes []error
	for _, addr := range sentinels {
		if err := ctx.Err(); err != nil {
			return "", redis.ErrContextClosed.Wrap(err, "sentinel lookup interrupted")
		}
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = redisdumb.DefaultTimeout
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
			timeout = time.Until(deadline)
		}
		conn := redisdumb.Conn{
			Addr:     addr,
			Username: opts.Username,
			Password: opts.Password,
			Timeout:  timeout,
		}
		res := conn.Do("SENTINEL get-master-addr-by-name", name)
		conn.Close()

		master, err := parseMasterAddr(res)
		if err != nil {
			log.Warn("redissentinel: sentinel failed",
				zap.String("sentinel", addr), zap.String("master_name", name), zap.Error(err))
			if rerr := redis.AsErrorx(err); !redis.HardError(rerr) {
				answered = true
			}
			causes = append(causes, err)
			continue
		}
		if master == "" {
			answered = true
			continue
		}
		return master, nil
	}
	if answered {
		return "", ErrNoMaster.New("master is not known to sentinels").WithProperty(EKMasterName, name)
	}
	return "", ErrSentinelsUnreachable.Wrap(errorx.DecorateMany("all sentinels failed", causes...),
		"could not reach sentinels").WithProperty(EKMasterName, name)
}

func parseMasterAddr(res interface{}) (string, error) {
	if err := redis.AsError(res); err != nil {
		return "", err
	}
	if res == nil {
		return "", nil
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) != 2 {
		return "", redis.ErrResponseUnexpected.New("unexpected sentinel reply").WithProperty(redis.EKResponse, res)
	}
	host, ok1 := arr[0].([]byte)
	port, ok2 := arr[1].([]byte)
	if !ok1 || !ok2 {
		return "", redis.ErrResponseUnexpected.New("unexpected sentinel reply").WithProperty(redis.EKResponse, res)
	}
	if _, err := strconv.Atoi(string(port)); err != nil {
		return "", redis.ErrResponseUnexpected.New("master port is not a number").WithProperty(redis.EKResponse, res)
	}
	return net.JoinHostPort(string(host), string(port)), nil
}
