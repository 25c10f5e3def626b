package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Admission API",
        "description": "Admission terms, admission forms, class builder and payment-driven enrollment",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Admission Terms", "description": "Grade-scoped admission windows"},
        {"name": "Admission Forms", "description": "Application approval and payment lifecycle"},
        {"name": "Classes", "description": "Pattern-based class builder and selection"}
    ],
    "paths": {
        "/admission-terms": {
            "post": {
                "tags": ["Admission Terms"],
                "summary": "Create admission term",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/CreateAdmissionTermRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admission-terms/active": {
            "get": {
                "tags": ["Admission Terms"],
                "summary": "Get the admission term currently accepting registrations",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No active term", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admission-terms/{id}": {
            "get": {
                "tags": ["Admission Terms"],
                "summary": "Get admission term",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admission-terms/items/{itemId}/start": {
            "post": {
                "tags": ["Admission Terms"],
                "summary": "Open a pending term item early",
                "parameters": [
                    {"in": "path", "name": "itemId", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Item is not pending", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admission-terms/items/{itemId}/end": {
            "post": {
                "tags": ["Admission Terms"],
                "summary": "Close a processing term item early",
                "parameters": [
                    {"in": "path", "name": "itemId", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Item is not processing", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admission-forms": {
            "post": {
                "tags": ["Admission Forms"],
                "summary": "Submit admission form",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/SubmitAdmissionFormRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Window closed or invalid payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Form already in progress", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admission-forms/{id}": {
            "get": {
                "tags": ["Admission Forms"],
                "summary": "Get admission form",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admission-forms/{id}/decision": {
            "post": {
                "tags": ["Admission Forms"],
                "summary": "Approve or reject an admission form",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "integer"},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/DecideAdmissionFormRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admission-forms/{id}/payment": {
            "post": {
                "tags": ["Admission Forms"],
                "summary": "Mark an approved form as paying",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "integer"},
                    {"in": "body", "name": "payload", "required": false, "schema": {"$ref": "#/definitions/BeginPaymentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Form is not waiting for payment", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes": {
            "post": {
                "tags": ["Classes"],
                "summary": "Create class from a weekly pattern",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/CreateClassRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Pattern rejected", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Teacher double-booked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/select": {
            "post": {
                "tags": ["Classes"],
                "summary": "Add a class to a selection",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/SelectClassRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict with the unchanged selection in data", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{id}": {
            "get": {
                "tags": ["Classes"],
                "summary": "Get class with schedules",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateTermItemRequest": {
            "type": "object",
            "required": ["grade", "startDate", "endDate", "expectedClasses"],
            "properties": {
                "grade": {"type": "string"},
                "startDate": {"type": "string", "format": "date-time"},
                "endDate": {"type": "string", "format": "date-time"},
                "expectedClasses": {"type": "integer"}
            }
        },
        "CreateAdmissionTermRequest": {
            "type": "object",
            "required": ["name", "academicYear", "startDate", "endDate", "items"],
            "properties": {
                "name": {"type": "string"},
                "academicYear": {"type": "string"},
                "startDate": {"type": "string", "format": "date-time"},
                "endDate": {"type": "string", "format": "date-time"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/CreateTermItemRequest"}}
            }
        },
        "SubmitAdmissionFormRequest": {
            "type": "object",
            "required": ["termItemId", "studentId", "parentId"],
            "properties": {
                "termItemId": {"type": "integer"},
                "studentId": {"type": "integer"},
                "parentId": {"type": "integer"},
                "classIds": {"type": "array", "items": {"type": "integer"}}
            }
        },
        "DecideAdmissionFormRequest": {
            "type": "object",
            "required": ["action"],
            "properties": {
                "action": {"type": "string", "enum": ["approve", "reject"]},
                "reason": {"type": "string"}
            }
        },
        "BeginPaymentRequest": {
            "type": "object",
            "properties": {
                "txnRef": {"type": "string"}
            }
        },
        "PatternActivityRequest": {
            "type": "object",
            "required": ["dayOfWeek", "startTime", "endTime"],
            "properties": {
                "dayOfWeek": {"type": "string", "example": "Monday"},
                "startTime": {"type": "string", "example": "08:00"},
                "endTime": {"type": "string", "example": "09:00"}
            }
        },
        "CreateClassRequest": {
            "type": "object",
            "required": ["teacherId", "syllabusId", "academicYear", "startDate"],
            "properties": {
                "teacherId": {"type": "integer"},
                "syllabusId": {"type": "integer"},
                "academicYear": {"type": "integer"},
                "startDate": {"type": "string", "format": "date-time"},
                "patterns": {"type": "array", "items": {"$ref": "#/definitions/PatternActivityRequest"}}
            }
        },
        "SelectClassRequest": {
            "type": "object",
            "required": ["classId"],
            "properties": {
                "classId": {"type": "integer"},
                "selectedClassIds": {"type": "array", "items": {"type": "integer"}}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
