package domain

// KeyPrefix namespaces every key the service writes to the vector store.
const KeyPrefix = "rag:"

// ImageCollection is the single collection shared by all clients for
// image embeddings. Images are not tenant-scoped.
const ImageCollection = "image_embeddings"

// TextCollectionName returns the per-client text collection name.
func TextCollectionName(clientID string) string {
	return "text_embeddings_" + clientID
}

// CollectionInfo describes a collection and its current size.
type CollectionInfo struct {
	Name     string `json:"name"`
	Modality string `json:"modality"` // "text" or "image"
	Dim      int    `json:"dim"`
	Count    int64  `json:"count"`
}

// Modality returns the embedding modality for a collection name.
func Modality(name string) string {
	if name == ImageCollection {
		return "image"
	}
	return "text"
}
