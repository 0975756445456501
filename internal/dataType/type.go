package dataType

const MeshNodeVersion = "0.3.0"

// SOSInstruction is the fixed prompt sent with every distress message.
const SOSInstruction = "You are a rescue coordinator AI. Your task is to receive a distress message, analyze it, and convert it into a structured JSON object. The JSON object must have keys for 'priority', 'summary', and 'first_aid'. Respond ONLY with the JSON object."

