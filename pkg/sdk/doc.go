// Package catalograg provides a Go client for the catalograg HTTP API.
//
//	client := catalograg.New("http://localhost:8080")
//	resp, _ := client.Query(ctx, "acme", "Quel est le prix de la perceuse ?", 5)
//	fmt.Println(resp.Answer)
//
// Errors returned by the server are mapped back to the sentinel errors
// exported by this package, so errors.Is works across the wire:
//
//	_, err := client.GetProduct(ctx, "acme", "missing")
//	if errors.Is(err, catalograg.ErrProductNotFound) { ... }
package catalograg
