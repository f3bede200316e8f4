/*
Package upstream builds vehicle-telematics clients from registered drivers.

Drivers publish an export with [Register]. The export is either a [Constructor] or a [Namespace]
that holds one, possibly nested under one or two levels of a "default" member:

	upstream.Register("example", upstream.Namespace{
		"default": upstream.Namespace{"MyMazda": upstream.Constructor(newClient)},
	})

A [Factory] resolves the constructor by trying, in order, a constructor at nesting level 2, a
MyMazda or Mazda member at level 2, then the same at level 1 and level 0. Every call to
[Factory.MakeClient] builds a new client; clients are never shared between requests.
*/
package upstream
