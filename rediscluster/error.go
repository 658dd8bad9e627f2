package rediscluster

import (
	"github.com/joomcode/errorx"
	"github.com/joomcode/redisbulk/redis"
)

var (
	// ErrCluster - some cluster related errors.
	ErrCluster = redis.Errors.NewType("cluster")
	// ErrClusterNodes - fetching cluster configuration failed on every known host.
	ErrClusterNodes = ErrCluster.NewSubtype("nodes", redis.ErrTraitConnectivity)
	// ErrClusterConfigEmpty - no usable masters found in configuration.
	ErrClusterConfigEmpty = ErrCluster.NewSubtype("config_empty")
)

var (
	// EKCluster - cluster name
	EKCluster = errorx.RegisterProperty("cluster")
)
