package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "FamCare Booking API",
        "description": "Availability and booking core for the FamCare counseling marketplace",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and token lifecycle"},
        {"name": "Consultants", "description": "Consultant directory and reviews"},
        {"name": "Availability", "description": "Published slot inventory"},
        {"name": "Bookings", "description": "Slot reservation and confirmation"},
        {"name": "Sessions", "description": "Session lifecycle"},
        {"name": "Reviews", "description": "Session reviews"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/consultants": {
            "get": {
                "tags": ["Consultants"],
                "summary": "List consultants",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "specialization", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/consultants/{id}/slots": {
            "get": {
                "tags": ["Availability"],
                "summary": "List available slots",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Availability"],
                "summary": "Publish an availability slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PublishSlotRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Overlapping slot"}
                }
            }
        },
        "/slots/{id}": {
            "delete": {
                "tags": ["Availability"],
                "summary": "Withdraw a free slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Withdrawn"},
                    "409": {"description": "Slot held or booked"}
                }
            }
        },
        "/slots/{id}/reserve": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Place a hold on a free slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReserveRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot taken or version conflict"}
                }
            }
        },
        "/bookings/confirm": {
            "post": {
                "tags": ["Bookings"],
                "summary": "Confirm a hold into a pending session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ConfirmRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Hold expired or stale"}
                }
            }
        },
        "/sessions/{id}/status": {
            "patch": {
                "tags": ["Sessions"],
                "summary": "Transition a session's status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Role not permitted"},
                    "409": {"description": "Illegal transition"}
                }
            }
        },
        "/sessions/{id}/receipt": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Download a PDF receipt",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF document"}
                }
            }
        },
        "/sessions/{id}/reviews": {
            "post": {
                "tags": ["Reviews"],
                "summary": "Review a completed session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitReviewRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate review or session not completed"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "PublishSlotRequest": {
            "type": "object",
            "properties": {
                "start_time": {"type": "string", "format": "date-time"},
                "end_time": {"type": "string", "format": "date-time"}
            },
            "required": ["start_time", "end_time"]
        },
        "ReserveRequest": {
            "type": "object",
            "properties": {
                "version": {"type": "integer"}
            }
        },
        "ConfirmRequest": {
            "type": "object",
            "properties": {
                "hold_token": {"type": "string"},
                "notes": {"type": "string"},
                "contact_channel": {"type": "string"}
            },
            "required": ["hold_token"]
        },
        "TransitionRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["PENDING", "CONFIRMED", "COMPLETED", "CANCELLED"]},
                "reason": {"type": "string"}
            },
            "required": ["status"]
        },
        "SubmitReviewRequest": {
            "type": "object",
            "properties": {
                "rating": {"type": "integer"},
                "comment": {"type": "string"},
                "is_anonymous": {"type": "boolean"},
                "private_comment": {"type": "string"}
            },
            "required": ["rating"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
