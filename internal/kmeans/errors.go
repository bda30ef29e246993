package kmeans

import "errors"

// ErrInvalidArgument is returned, wrapped with details, when Cluster or
// Follow is called with arguments that cannot produce a clustering. No
// computation or communication happens in that case.
var ErrInvalidArgument = errors.New("invalid argument")
