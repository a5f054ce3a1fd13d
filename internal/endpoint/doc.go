// Package endpoint compiles a CUE endpoint catalogue into request
// templates.
//
// A catalogue declares endpoints under the top-level "endpoint" field:
//
//	endpoint: feed: {
//		path: "users/{user}/feed"
//		params: limit: "20"
//		cache: ttl: "30s"
//		require: items: "array"
//	}
//
// Each endpoint is unified with the embedded #Endpoint schema, so defaults
// (GET, json responses, form bodies) are filled in and typos are reported
// with their CUE position. {name} placeholders in the path are substituted
// when a request is built.
package endpoint
