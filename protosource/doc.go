// Package protosource loads schemas from .proto source files.
//
// Sources are compiled with github.com/bufbuild/protocompile and the results
// are sealed into a protopool.Pool, where they can be used like any other
// registered types:
//
//	loader := &protosource.Loader{ImportPaths: []string{"./proto"}}
//	files, err := loader.Load(ctx, pool, "acme/orders.proto")
//	if err != nil {
//		return err
//	}
//	order := pool.LookupMessage("acme.orders.Order")
//
// Services and extensions declared in the sources are not part of the
// schema model and are dropped.
package protosource
