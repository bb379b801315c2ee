package manager

// Plain-text response bodies. Existing clients match on these strings.
const (
	msgLLMInitOK      = "Init llm success."
	msgLLMInitAlready = "ERROR: Cannot init llm, cause llm is already be initialized."
	msgLLMBusy        = "ERROR: Cannot do llm chat, cause llm inferrequest is now not initialized or busy, check the stats of llm."

	msgVLMInitOK      = "Init vlm success."
	msgVLMInitAlready = "ERROR: Cannot init vlm, cause vlm is already be initialized."
	msgVLMBusy        = "ERROR: Cannot do vlm chat, cause vlm inferrequest is now not initialized or busy, check the stats of vlm."
	msgVLMImageBusy   = "ERROR: Cannot update image, cause vlm inferrequest is now not initialized or busy, check the stats of vlm."

	msgEmbedInitOK      = "Init embeddings success."
	msgEmbedInitAlready = "ERROR: Cannot init embeddings, cause embeddings is already be initialized."
	msgEmbedOK          = "Embeddings success"
	msgEmbedBusy        = "ERROR: Cannot do embeddings, cause embeddings inferrequest is now not initialized or busy, check the stats of embeddings."

	msgImageEmbedInitOK      = "Init image embeddings success."
	msgImageEmbedInitAlready = "Cannot init image embeddings, cause image embeddings is already be initialized."
	msgImageEmbedOK          = "Image Embeddings success"
	msgImageEmbedBusy        = "Cannot do image embeddings, cause image embeddings inferrequest is now not initialized or busy, check the stats of blip."

	msgRerankInitAlready = "ERROR: Cannot init reranker, cause reranker is already be initialized."

	msgDBInitOK      = "Init db success."
	msgDBInitAlready = "ERROR: Cannot init db, cause db is already be initialized."

	msgInsertOK        = "insert success"
	msgInsertBusy      = "ERROR: Cannot insert, cause insert inferrequest is now not initialized or busy, check the stats of insert."
	msgImageInsertBusy = "Cannot insert, cause insert inferrequest is now not initialized or busy, check the stats of insert."

	msgRetrieveOK        = "Retrieval successed"
	msgRetrieveBusy      = "ERROR: Cannot retrieve, cause retrieve inferrequest is now not initialized or busy, check the stats of retrieve."
	msgImageRetrieveBusy = "Cannot retrieve, cause retrieve inferrequest is now not initialized or busy, check the stats of retrieve."
)
