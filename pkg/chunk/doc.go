// Package chunk turns a cached collection response into a page view.
//
// The full collection is what gets cached. A page is computed per request on
// the cached body, so a league with 400 matches is stored once no matter how
// many pages clients ask for.
//
// Example usage:
//
//	params, ok := chunk.ParseParams(r.URL.Query(), chunk.DefaultConfig())
//	if ok {
//		body, applied, err := chunk.Apply(entry.Data, params)
//		...
//	}
//
// The array is located through an ordered list of known field names (see
// Fields). A body that is itself an array is exposed under "data".
//
// Output shape:
//
//	{
//	  "success": true,
//	  "chunk": {"page": 2, "limit": 20, "totalItems": 45, "totalChunks": 3, "hasMore": true, "items": 20},
//	  "matches": [ ...20 items... ],
//	  ...other fields of the original body...
//	}
package chunk
