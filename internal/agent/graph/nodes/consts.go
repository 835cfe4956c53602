package nodes

// Graph node keys.
const (
	NodeInputConverter      = "InputConverter"
	NodeCollectionAssembler = "CollectionAssembler"
	NodeConversationModel   = "ConversationChatModel"
	NodeCollectionFinalizer = "CollectionFinalizer"
	NodeConfirmationGate    = "ConfirmationGate"
	NodeAnalysisAgent       = "AnalysisAgent"
)
